package layoutswitch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"kswitchd/internal/layout"
)

const (
	kdeService   = "org.kde.keyboard"
	kdePath      = dbus.ObjectPath("/Layouts")
	kdeInterface = "org.kde.KeyboardLayouts"
)

// kdeLayout is one entry of getLayoutsList: short name, variant, long name.
type kdeLayout struct {
	Short   string
	Variant string
	Long    string
}

// KDE switches layouts through the Plasma keyboard daemon on the session
// bus.
type KDE struct {
	logger *slog.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewKDE returns a KDE switcher. The bus connection is opened lazily.
func NewKDE() *KDE {
	return &KDE{logger: slog.Default().With("component", "layoutswitch", "backend", BackendKDE)}
}

func (k *KDE) Name() string { return BackendKDE }

func (k *KDE) object() (dbus.BusObject, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			k.logger.Debug("session bus unavailable", "error", err)
			return nil, false
		}
		k.conn = conn
	}
	return k.conn.Object(kdeService, kdePath), true
}

func (k *KDE) layouts(ctx context.Context, obj dbus.BusObject) ([]kdeLayout, bool) {
	var list []kdeLayout
	if err := obj.CallWithContext(ctx, kdeInterface+".getLayoutsList", 0).Store(&list); err != nil {
		k.logger.Debug("getLayoutsList failed", "error", err)
		return nil, false
	}
	return list, true
}

func (k *KDE) Current(ctx context.Context) (layout.ID, bool) {
	obj, ok := k.object()
	if !ok {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var idx uint32
	if err := obj.CallWithContext(ctx, kdeInterface+".getLayout", 0).Store(&idx); err != nil {
		k.logger.Debug("getLayout failed", "error", err)
		return "", false
	}
	list, ok := k.layouts(ctx, obj)
	if !ok || int(idx) >= len(list) {
		return "", false
	}
	return layout.ID(list[idx].Short), true
}

func (k *KDE) Switch(ctx context.Context, id layout.ID) bool {
	obj, ok := k.object()
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	list, ok := k.layouts(ctx, obj)
	if !ok {
		return false
	}
	for i, l := range list {
		if layout.ID(l.Short) != id {
			continue
		}
		var done bool
		if err := obj.CallWithContext(ctx, kdeInterface+".setLayout", 0, uint32(i)).Store(&done); err != nil {
			k.logger.Debug("setLayout failed", "error", err)
			return false
		}
		return done
	}
	k.logger.Debug("layout not configured in plasma", "layout", id)
	return false
}

// Close releases the bus connection.
func (k *KDE) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.conn == nil {
		return nil
	}
	err := k.conn.Close()
	k.conn = nil
	return err
}
