package app

import (
	"testing"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

func TestContactPayload(t *testing.T) {
	cases := []struct {
		args   string
		wantID int64
		wantOK bool
	}{
		{"contact_42", 42, true},
		{"  contact_7  ", 7, true},
		{"contact_0", 0, false},
		{"contact_-3", 0, false},
		{"contact_abc", 0, false},
		{"vip_42", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		id, ok := contactPayload(tc.args)
		if id != tc.wantID || ok != tc.wantOK {
			t.Fatalf("contactPayload(%q) = (%d, %v), want (%d, %v)", tc.args, id, ok, tc.wantID, tc.wantOK)
		}
	}
}

func TestParseDecisionToken(t *testing.T) {
	cases := []struct {
		data       string
		wantAction enums.TaskAction
		wantTaskID int64
		wantOK     bool
	}{
		{"approve:15", enums.ActionApprove, 15, true},
		{"media_reset:3", enums.ActionMediaReset, 3, true},
		{"esc_block:9", enums.ActionEscBlock, 9, true},
		{"approve:0", "", 0, false},
		{"approve:xyz", "", 0, false},
		{"delete:5", "", 0, false},
		{"approve", "", 0, false},
		{"", "", 0, false},
	}

	for _, tc := range cases {
		action, taskID, ok := parseDecisionToken(tc.data)
		if action != tc.wantAction || taskID != tc.wantTaskID || ok != tc.wantOK {
			t.Fatalf("parseDecisionToken(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tc.data, action, taskID, ok, tc.wantAction, tc.wantTaskID, tc.wantOK)
		}
	}
}
