package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-stock/pkg/errors"
)

type adjustBody struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Kind   string `json:"kind" validate:"required,oneof=restock write_off correction"`
	Reason string `json:"reason" validate:"required,max=256"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"delta":0,"kind":"gift","reason":""}`))
	var body adjustBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	for _, field := range []string{"delta", "kind", "reason"} {
		if details[field] == "" {
			t.Fatalf("expected %s to be reported, got %v", field, details)
		}
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"delta":1,"kind":"restock","reason":"po","extra":true}`))
	var body adjustBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type holdBody struct {
	Lines []struct {
		ProductID string `json:"productId" validate:"required"`
		Quantity  int    `json:"quantity" validate:"gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
	HoldSeconds int `json:"holdSeconds" validate:"gte=0,lte=86400"`
}

func TestDecodeJSONBodyReportsNestedPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[{"productId":"A","quantity":1},{"productId":"B","quantity":0}],"holdSeconds":90000}`))
	var body holdBody
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	if typed == nil {
		t.Fatal("expected validation error")
	}
	details := typed.Details().(map[string]string)
	if details["lines[1].quantity"] != "must be greater than 0" {
		t.Fatalf("expected indexed line path, got %v", details)
	}
	if details["holdSeconds"] != "must be at most 86400" {
		t.Fatalf("expected hold bound message, got %v", details)
	}
}

func TestDecodeJSONBodyRejectsTrailingAndOversizedBodies(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"delta":1,"kind":"restock","reason":"po"}{"delta":2}`))
	var body adjustBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected trailing data to be rejected, got %v", err)
	}

	huge := `{"delta":1,"kind":"restock","reason":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation || typed.Error() == "" {
		t.Fatalf("expected size error, got %v", err)
	}
	if !strings.Contains(typed.Error(), "too large") {
		t.Fatalf("expected body size message, got %q", typed.Error())
	}
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&trackedOnly=true&since=2026-01-05T10:00:00%2B02:00&bad=x", nil)

	limit, err := ParseQueryInt(req, "limit", 25, 1, 100)
	if err != nil || limit != 5 {
		t.Fatalf("limit: %d %v", limit, err)
	}
	if _, err := ParseQueryInt(req, "bad", 25, 1, 100); err == nil {
		t.Fatal("expected numeric error")
	}

	tracked, err := ParseQueryBool(req, "trackedOnly", false)
	if err != nil || !tracked {
		t.Fatalf("trackedOnly: %v %v", tracked, err)
	}

	since, err := ParseQueryTime(req, "since")
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if want := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC); !since.Equal(want) || since.Location() != time.UTC {
		t.Fatalf("expected %s in UTC, got %s", want, since)
	}
	if missing, err := ParseQueryTime(req, "until"); err != nil || missing != nil {
		t.Fatalf("expected nil for missing time, got %v %v", missing, err)
	}
	if _, err := ParseQueryTime(req, "bad"); err == nil {
		t.Fatal("expected time parse error")
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  SKU-1 \n", 64, "SKU-1"},
		{"ab\x00c\td", 0, "abcd"},
		{"größe-42", 5, "größe"},
		{"short", 10, "short"},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.in, tc.max); got != tc.want {
			t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
