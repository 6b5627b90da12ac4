package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewInvalidMetricTypeError(t *testing.T) {
	tests := []struct {
		name    string
		metric  string
		value   interface{}
		wantMsg string
	}{
		{
			name:    "string value",
			metric:  "loss",
			value:   "0.5",
			wantMsg: `trainkit: invalid metric type for "loss": string is not a numeric scalar`,
		},
		{
			name:    "nil value",
			metric:  "accuracy",
			value:   nil,
			wantMsg: `trainkit: invalid metric type for "accuracy": <nil> is not a numeric scalar`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewInvalidMetricTypeError(tt.metric, tt.value)

			// 基本的なエラーメッセージの確認
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			// InvalidMetricTypeError型にキャスト可能か確認
			var metricErr *InvalidMetricTypeError
			if !As(err, &metricErr) {
				t.Error("Error should be castable to *InvalidMetricTypeError")
			}
		})
	}
}

func TestNewInvalidImageShapeError(t *testing.T) {
	err := NewInvalidImageShapeError("samples", []int{2, 3, 4, 5, 6})

	want := `trainkit: invalid image shape for "samples": [2 3 4 5 6] cannot be normalized to (N,H,W,C)`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var shapeErr *InvalidImageShapeError
	if !As(err, &shapeErr) {
		t.Error("Error should be castable to *InvalidImageShapeError")
	}
	if len(shapeErr.Shape) != 5 {
		t.Errorf("Shape = %v, want rank 5", shapeErr.Shape)
	}
}

func TestNewSinkWriteError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewSinkWriteError("JSONWriter", "rename", cause)

	want := "trainkit: JSONWriter: rename failed: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	// Unwrapで原因エラーに到達できるか確認
	if !Is(err, cause) {
		t.Error("SinkWriteError should unwrap to its cause")
	}

	var sinkErr *SinkWriteError
	if !As(err, &sinkErr) {
		t.Error("Error should be castable to *SinkWriteError")
	}
	if sinkErr.Sink != "JSONWriter" {
		t.Errorf("Sink = %v, want JSONWriter", sinkErr.Sink)
	}
}

func TestNewUnknownMetricError(t *testing.T) {
	err := NewUnknownMetricError("val/acc")

	var unknownErr *UnknownMetricError
	if !As(err, &unknownErr) {
		t.Error("Error should be castable to *UnknownMetricError")
	}
	if unknownErr.Name != "val/acc" {
		t.Errorf("Name = %v, want val/acc", unknownErr.Name)
	}
}

func TestNewRestoreAfterRunError(t *testing.T) {
	err := NewRestoreAfterRunError(3, 42)

	want := "trainkit: cannot restore after stepping has begun (epoch_num=3, global_step=42)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWarningHandler(t *testing.T) {
	var captured error
	SetWarningHandler(func(w error) {
		captured = w
	})
	defer SetWarningHandler(nil)

	warning := NewInconsistentResumeWarning(5, 10, "stats.json.0101-000000")
	Warn(warning)

	if captured == nil {
		t.Fatal("Expected warning handler to be called")
	}
	if !strings.Contains(captured.Error(), "starting_epoch=10") {
		t.Errorf("Warning message missing context: %v", captured)
	}
}

func TestSetZerologWarnFunc(t *testing.T) {
	var captured error
	SetZerologWarnFunc(func(w error) {
		captured = w
	})
	defer SetZerologWarnFunc(nil)

	warning := NewInconsistentResumeWarning(1, 3, "backup")
	Warn(warning)

	if captured != warning {
		t.Error("Expected zerolog warn func to take precedence over the default handler")
	}
}
