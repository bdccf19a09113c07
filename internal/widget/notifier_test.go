package widget

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/rendercache"
)

var _ rendercache.Refresher = (*Notifier)(nil)

func TestRefresh_PublishesEvent(t *testing.T) {
	bus := event.NewBus()
	var kinds []string
	bus.Subscribe(event.TypeWidgetRefresh, func(e event.Event) {
		kinds = append(kinds, e.(event.WidgetRefreshEvent).Kind)
	})

	n := NewNotifier(bus)
	n.Refresh("keyring")
	n.Refresh("gift")

	if len(kinds) != 2 || kinds[0] != "keyring" || kinds[1] != "gift" {
		t.Errorf("refresh kinds = %v, want [keyring gift]", kinds)
	}
}

func TestRefresh_TouchFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	n := NewNotifier(nil, WithTouchFile(fs, "/shared/widget/refresh"))
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	n.Refresh("keyring")

	data, err := afero.ReadFile(fs, "/shared/widget/refresh")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "2026-01-02T03:04:05Z keyring\n"
	if string(data) != want {
		t.Errorf("touch file = %q, want %q", data, want)
	}
}

func TestRefresh_TouchFailureIsLogged(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	bus := event.NewBus()
	published := 0
	bus.SubscribeAll(func(event.Event) { published++ })

	n := NewNotifier(bus, WithTouchFile(fs, "/ro/refresh"))
	n.Refresh("keyring")

	if published != 1 {
		t.Errorf("published %d events, want 1 even when touch fails", published)
	}
}
