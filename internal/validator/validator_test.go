package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type createSessionLike struct {
	Filename string `json:"filename" validate:"required"`
}

type offerLike struct {
	SDP  string `json:"sdp" validate:"required"`
	Type string `json:"type" validate:"required,oneof=offer"`
}

type rangedLike struct {
	Name string `json:"name" validate:"required,min=3,max=10"`
}

func TestValidateStruct_Success(t *testing.T) {
	req := createSessionLike{Filename: "test_video_1.mp4"}
	assert.NoError(t, ValidateStruct(req))
}

func TestValidateStruct_RequiredFields(t *testing.T) {
	req := createSessionLike{}
	assert.Error(t, ValidateStruct(req))
}

func TestValidateRequest_Success(t *testing.T) {
	req := offerLike{SDP: "v=0...", Type: "offer"}
	assert.Nil(t, ValidateRequest(req))
}

func TestValidateRequest_MultipleErrors(t *testing.T) {
	req := offerLike{}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "sdp")
	assert.Contains(t, errs, "type")
}

func TestValidateRequest_OneOf(t *testing.T) {
	req := offerLike{SDP: "v=0...", Type: "answer"}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "type")
	assert.Contains(t, errs["type"], "one of")
}

func TestValidateMinMax_Strings(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{"valid", "abcde", false},
		{"too short", "ab", true},
		{"too long", "abcdefghijk", true},
		{"min length", "abc", false},
		{"max length", "abcdefghij", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := rangedLike{Name: tt.value}
			errs := ValidateRequest(req)
			if tt.shouldErr {
				assert.NotNil(t, errs)
				assert.Contains(t, errs, "name")
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}

func TestFormatValidationError_Descriptive(t *testing.T) {
	req := offerLike{}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	for field, msg := range errs {
		assert.NotEmpty(t, msg, "error message should not be empty for field: %s", field)
	}
}
