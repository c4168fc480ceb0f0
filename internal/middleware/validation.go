package middleware

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	pkgvalidator "github.com/jwalitptl/careflow-api/pkg/validator"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators installs the custom binding tags on gin's validator engine
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		registerErr = pkgvalidator.Register(v)
	})
	return registerErr
}
