package cli

import (
	"testing"

	"github.com/emberchat/ember/internal/models"
)

func TestParsePeer(t *testing.T) {
	tests := []struct {
		arg     string
		want    models.Peer
		wantErr bool
	}{
		{arg: "user:42", want: models.UserPeer(42)},
		{arg: "chat:7", want: models.ChatPeer(7)},
		{arg: "42", want: models.UserPeer(42)},
		{arg: " user:42 ", want: models.UserPeer(42)},
		{arg: "", wantErr: true},
		{arg: "group:7", wantErr: true},
		{arg: "user:abc", wantErr: true},
		{arg: "user:-1", wantErr: true},
		{arg: "user:0", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parsePeer(tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePeer(%q) expected error, got %v", tt.arg, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePeer(%q) error = %v", tt.arg, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePeer(%q) = %v, want %v", tt.arg, got, tt.want)
		}
	}
}
