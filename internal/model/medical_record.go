package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "pending"
	RecordStatusReviewed   RecordStatus = "reviewed"
	RecordStatusPrescribed RecordStatus = "prescribed"
	RecordStatusDispensed  RecordStatus = "dispensed"
	RecordStatusCompleted  RecordStatus = "completed"
)

var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordStatusPending:    {RecordStatusReviewed, RecordStatusPrescribed},
	RecordStatusReviewed:   {RecordStatusPrescribed},
	RecordStatusPrescribed: {RecordStatusDispensed},
	RecordStatusDispensed:  {RecordStatusCompleted},
}

// CanTransitionTo reports whether the status may advance to next
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	for _, allowed := range recordTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// VitalSigns are stored as a single JSONB column
type VitalSigns struct {
	BloodPressure string `json:"bloodPressure,omitempty"`
	HeartRate     string `json:"heartRate,omitempty"`
	Temperature   string `json:"temperature,omitempty"`
	Weight        string `json:"weight,omitempty"`
	Height        string `json:"height,omitempty"`
}

func (v VitalSigns) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *VitalSigns) Scan(src interface{}) error {
	switch data := src.(type) {
	case nil:
		*v = VitalSigns{}
		return nil
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("cannot scan %T into VitalSigns", src)
	}
}

// MedicalRecord is one patient submission and everything that happened to it
type MedicalRecord struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	PatientID          uuid.UUID    `json:"patientId" db:"patient_id"`
	Symptoms           string       `json:"symptoms" db:"symptoms"`
	PainLevel          string       `json:"painLevel" db:"pain_level"`
	VitalSigns         VitalSigns   `json:"vitalSigns" db:"vital_signs"`
	MedicalHistory     string       `json:"medicalHistory" db:"medical_history"`
	Allergies          string       `json:"allergies" db:"allergies"`
	CurrentMedications string       `json:"currentMedications" db:"current_medications"`
	AdditionalNotes    string       `json:"additionalNotes" db:"additional_notes"`
	Age                string       `json:"age" db:"age"`
	EmergencyContact   string       `json:"emergencyContact" db:"emergency_contact"`
	Status             RecordStatus `json:"status" db:"status"`
	SubmittedAt        time.Time    `json:"submittedAt" db:"submitted_at"`
	Diagnosis          string       `json:"diagnosis,omitempty" db:"diagnosis"`
	Prescription       string       `json:"prescription,omitempty" db:"prescription"`
	DoctorNotes        string       `json:"doctorNotes,omitempty" db:"doctor_notes"`
	ReviewerID         *uuid.UUID   `json:"reviewedBy,omitempty" db:"reviewer_id"`
	ReviewerName       string       `json:"reviewerName,omitempty" db:"reviewer_name"`
	ReviewedAt         *time.Time   `json:"reviewedAt,omitempty" db:"reviewed_at"`
	DispensedBy        *uuid.UUID   `json:"dispensedBy,omitempty" db:"dispensed_by"`
	DispenserName      string       `json:"dispenserName,omitempty" db:"dispenser_name"`
	DispensedAt        *time.Time   `json:"dispensedAt,omitempty" db:"dispensed_at"`
	UpdatedAt          time.Time    `json:"updatedAt" db:"updated_at"`
}

// RecordView is a record joined with its patient
type RecordView struct {
	MedicalRecord
	PatientName  string `json:"patientName" db:"patient_name"`
	PatientEmail string `json:"patientEmail" db:"patient_email"`
}

// RecordFilter selects records for the queues. Empty Statuses matches everything.
type RecordFilter struct {
	PatientID *uuid.UUID
	Statuses  []RecordStatus
	OrderBy   RecordOrder
}

type RecordOrder string

const (
	OrderBySubmitted RecordOrder = "submitted_at"
	OrderByReviewed  RecordOrder = "reviewed_at"
	OrderByDispensed RecordOrder = "dispensed_at"
)

// SubmitRecordRequest is the patient symptom form
type SubmitRecordRequest struct {
	Symptoms           string `json:"symptoms" binding:"required,notblank,max=5000"`
	BloodPressure      string `json:"bloodPressure" binding:"max=32"`
	HeartRate          string `json:"heartRate" binding:"max=32"`
	Temperature        string `json:"temperature" binding:"max=32"`
	Weight             string `json:"weight" binding:"max=32"`
	Height             string `json:"height" binding:"max=32"`
	Age                string `json:"age" binding:"max=16"`
	PainLevel          string `json:"painLevel" binding:"max=16"`
	MedicalHistory     string `json:"medicalHistory" binding:"max=5000"`
	Allergies          string `json:"allergies" binding:"max=2000"`
	CurrentMedications string `json:"currentMedications" binding:"max=2000"`
	AdditionalNotes    string `json:"additionalNotes" binding:"max=5000"`
	EmergencyContact   string `json:"emergencyContact" binding:"max=200"`
}

// ToRecord builds a pending record for the patient
func (r *SubmitRecordRequest) ToRecord(patientID uuid.UUID, now time.Time) *MedicalRecord {
	return &MedicalRecord{
		ID:        uuid.New(),
		PatientID: patientID,
		Symptoms:  strings.TrimSpace(r.Symptoms),
		PainLevel: r.PainLevel,
		VitalSigns: VitalSigns{
			BloodPressure: r.BloodPressure,
			HeartRate:     r.HeartRate,
			Temperature:   r.Temperature,
			Weight:        r.Weight,
			Height:        r.Height,
		},
		MedicalHistory:     r.MedicalHistory,
		Allergies:          r.Allergies,
		CurrentMedications: r.CurrentMedications,
		AdditionalNotes:    r.AdditionalNotes,
		Age:                r.Age,
		EmergencyContact:   r.EmergencyContact,
		Status:             RecordStatusPending,
		SubmittedAt:        now,
		UpdatedAt:          now,
	}
}

// ReviewRequest is a doctor's review of a pending record
type ReviewRequest struct {
	RecordID     string `json:"recordId" binding:"required"`
	Diagnosis    string `json:"diagnosis" binding:"required,notblank,max=5000"`
	Prescription string `json:"prescription" binding:"max=2000"`
	Notes        string `json:"notes" binding:"max=5000"`
}
