package history

import (
	"testing"

	"github.com/dgnsrekt/webshell/internal/viewstate"
)

func TestOnBackRequested(t *testing.T) {
	for _, phase := range []viewstate.Phase{viewstate.Loading, viewstate.Ready, viewstate.Error} {
		pop := OnBackRequested(viewstate.State{Phase: phase, CanGoBack: true})
		if pop != PopSurfaceHistory {
			t.Fatalf("phase %s can_go_back=true: got %s; want %s", phase, pop, PopSurfaceHistory)
		}
		pass := OnBackRequested(viewstate.State{Phase: phase, CanGoBack: false})
		if pass != PassThrough {
			t.Fatalf("phase %s can_go_back=false: got %s; want %s", phase, pass, PassThrough)
		}
	}
}

func TestHandled(t *testing.T) {
	if !PopSurfaceHistory.Handled() {
		t.Fatal("PopSurfaceHistory.Handled() = false")
	}
	if PassThrough.Handled() {
		t.Fatal("PassThrough.Handled() = true")
	}
}
