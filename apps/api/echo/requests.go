package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/student"
)

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}

	StatusRequest struct {
		Status attendance.Status `json:"status"`
	}

	RatingRequest struct {
		Rating int `json:"rating"`
	}

	// ScanRequest carries a decoded scan key.
	ScanRequest struct {
		Raw string `json:"raw"`
	}

	OpenScanRequest struct {
		Date string `json:"date"` // defaults to today
	}

	ScanFailureRequest struct {
		Reason string `json:"reason"`
	}

	// EntryResponse is the ledger entry of a student after a write.
	EntryResponse struct {
		Date      string `json:"date"`
		StudentID string `json:"student_id"`
		attendance.Entry
	}

	ScanResponse struct {
		Date    string           `json:"date"`
		Student student.Student  `json:"student"`
		Entry   attendance.Entry `json:"entry"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
