package outbox

import (
	"errors"
	"testing"
)

func TestValidatePrefix(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		wantErr bool
	}{
		{name: "letters", prefix: "ARQ"},
		{name: "lower case", prefix: "arq"},
		{name: "underscore", prefix: "_arq_X"},
		{name: "max length", prefix: "ABCDEFGH"},
		{name: "empty", prefix: "", wantErr: true},
		{name: "blank", prefix: "   ", wantErr: true},
		{name: "digit", prefix: "ARQ1", wantErr: true},
		{name: "dash", prefix: "AR-Q", wantErr: true},
		{name: "space", prefix: "A Q", wantErr: true},
		{name: "bracket injection", prefix: "A];DROP", wantErr: true},
		{name: "quote injection", prefix: "A'--", wantErr: true},
		{name: "too long", prefix: "ABCDEFGHI", wantErr: true},
		{name: "reserved upper", prefix: "SELECT", wantErr: true},
		{name: "reserved lower", prefix: "drop", wantErr: true},
		{name: "reserved mixed", prefix: "TaBlE", wantErr: true},
		{name: "reserved user", prefix: "user", wantErr: true},
		{name: "unicode letter", prefix: "ÄRQ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrefix(tt.prefix)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidIdentifier) {
					t.Fatalf("ValidatePrefix(%q): expected ErrInvalidIdentifier, got %v", tt.prefix, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidatePrefix(%q): unexpected error %v", tt.prefix, err)
			}
		})
	}
}

func TestNewStoreRejectsInvalidPrefixBeforeBuildingSQL(t *testing.T) {
	store, err := NewStore("ARQ;--")
	if !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier, got %v", err)
	}
	if store != nil {
		t.Fatal("expected no store to be built")
	}
}

func TestTableName(t *testing.T) {
	if got := TableName("arq"); got != "ARQ_OUTBOX_MESSAGES" {
		t.Errorf("TableName(arq) = %q, want ARQ_OUTBOX_MESSAGES", got)
	}
}
