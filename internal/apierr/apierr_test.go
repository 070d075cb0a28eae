package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSentinelsMatchByKind(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"validation", Validation("content required"), ErrValidation, true},
		{"network", Network(errors.New("dial tcp: refused")), ErrNetwork, true},
		{"authentication", Authentication(""), ErrAuthentication, true},
		{"application", Application(http.StatusUnprocessableEntity, "", "bad"), ErrApplication, true},
		{"not matched is application", NotMatched(Application(http.StatusForbidden, "", "")), ErrApplication, true},
		{"not matched", NotMatched(nil), ErrNotMatched, true},
		{"application is not network", Application(http.StatusBadRequest, "", "bad"), ErrNetwork, false},
		{"wrapped", fmt.Errorf("like 7: %w", Network(nil)), ErrNetwork, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errors.Is(tc.err, tc.sentinel); got != tc.want {
				t.Fatalf("errors.Is = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNotMatchedKeepsServerMessage(t *testing.T) {
	err := NotMatched(Application(http.StatusForbidden, "", "You can only message matches"))
	if Message(err) != "You can only message matches" {
		t.Fatalf("unexpected message %q", Message(err))
	}

	err = NotMatched(Application(http.StatusForbidden, "", ""))
	if Message(err) != "you can only message users you have matched with" {
		t.Fatalf("unexpected default message %q", Message(err))
	}
	if StatusOf(err) != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", StatusOf(err))
	}
}

func TestDuplicateActionCarriesOriginalDetails(t *testing.T) {
	err := DuplicateAction(Application(http.StatusConflict, "already_liked", "Already liked this user"))
	if KindOf(err) != KindDuplicateAction {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	if Message(err) != "Already liked this user" || StatusOf(err) != http.StatusConflict {
		t.Fatalf("unexpected details %q %d", Message(err), StatusOf(err))
	}
}

func TestMessageFallsBackToErrorText(t *testing.T) {
	if Message(nil) != "" {
		t.Fatal("expected empty message for nil")
	}
	if Message(errors.New("plain")) != "plain" {
		t.Fatal("expected plain error text")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("expected no kind for plain errors")
	}
}
