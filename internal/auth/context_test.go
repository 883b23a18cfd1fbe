package auth

import (
	"context"
	"testing"

	"github.com/lensai/lensai/internal/model"
)

func TestAuthContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if AuthFromContext(ctx) != nil {
		t.Fatal("empty context should carry no auth")
	}
	if ProjectIDFromContext(ctx) != "" || KeyIDFromContext(ctx) != "" {
		t.Fatal("empty context should yield empty IDs")
	}

	ctx = ContextWithAuth(ctx, &model.AuthContext{KeyID: "k1", KeyPrefix: "abc123", ProjectID: "p1"})
	if got := ProjectIDFromContext(ctx); got != "p1" {
		t.Errorf("ProjectIDFromContext = %q, want p1", got)
	}
	if got := KeyIDFromContext(ctx); got != "k1" {
		t.Errorf("KeyIDFromContext = %q, want k1", got)
	}
}

func TestCanAccessProject(t *testing.T) {
	authed := ContextWithAuth(context.Background(), &model.AuthContext{KeyID: "k1", ProjectID: "p1"})

	tests := []struct {
		name      string
		ctx       context.Context
		projectID string
		want      bool
	}{
		{"own project", authed, "p1", true},
		{"other project", authed, "p2", false},
		{"empty project", authed, "", false},
		{"unauthenticated", context.Background(), "p1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccessProject(tt.ctx, tt.projectID); got != tt.want {
				t.Errorf("CanAccessProject = %v, want %v", got, tt.want)
			}
		})
	}
}
