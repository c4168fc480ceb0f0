package model

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionStatusPending   PrescriptionStatus = "pending"
	PrescriptionStatusDispensed PrescriptionStatus = "dispensed"
)

// DefaultDosage is recorded when the doctor gives free-text instructions only
const DefaultDosage = "As prescribed"

// Prescription is derived from a prescribed record and dispensed by a clerk
type Prescription struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	RecordID     uuid.UUID          `json:"recordId" db:"record_id"`
	PatientID    uuid.UUID          `json:"patientId" db:"patient_id"`
	DoctorID     uuid.UUID          `json:"doctorId" db:"doctor_id"`
	Medication   string             `json:"medication" db:"medication"`
	Dosage       string             `json:"dosage" db:"dosage"`
	Instructions string             `json:"instructions" db:"instructions"`
	Status       PrescriptionStatus `json:"status" db:"status"`
	Notes        string             `json:"notes,omitempty" db:"notes"`
	DispensedBy  *uuid.UUID         `json:"dispensedBy,omitempty" db:"dispensed_by"`
	DispensedAt  *time.Time         `json:"dispensedAt,omitempty" db:"dispensed_at"`
	CreatedAt    time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" db:"updated_at"`
}

// PrescriptionView is a prescription joined with its patient and doctor
type PrescriptionView struct {
	Prescription
	PatientName  string `json:"patientName" db:"patient_name"`
	PatientEmail string `json:"patientEmail" db:"patient_email"`
	DoctorName   string `json:"doctorName" db:"doctor_name"`
}

// PrescriptionFilter selects prescriptions for the clerk queue. Empty Status matches all.
type PrescriptionFilter struct {
	Status PrescriptionStatus
}

// DispenseRequest identifies the prescription by its own id or by its record id
type DispenseRequest struct {
	PrescriptionID string `json:"prescriptionId"`
	RecordID       string `json:"recordId"`
	Notes          string `json:"notes" binding:"max=2000"`
}
