package i18n

import (
	"strings"
	"testing"
)

func TestTranslateKnownMessage(t *testing.T) {
	Init("en")
	got := Tf("ledger.verify.valid", map[string]any{"TxID": "tx-00000001"})
	if !strings.Contains(got, "tx-00000001") {
		t.Errorf("Tf = %q, want the tx id interpolated", got)
	}
}

func TestTranslateUnknownMessageFallsBack(t *testing.T) {
	Init("en")
	if got := T("no.such.message"); got != "no.such.message" {
		t.Errorf("T(unknown) = %q, want the id itself", got)
	}
}

func TestTranslateWithoutInit(t *testing.T) {
	localizer = nil
	if got := T("ledger.list.empty"); got == "" {
		t.Error("T before Init returned empty string")
	}
}
