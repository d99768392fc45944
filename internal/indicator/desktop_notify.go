package indicator

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"
)

// urgencyNormal is the freedesktop "normal" urgency hint value.
const urgencyNormal byte = 1

type desktopNotification struct {
	AppName   string
	ReplaceID uint32
	Summary   string
	Body      string
	Urgency   byte
	TimeoutMS int32
}

// desktopBus is the freedesktop notification surface.
type desktopBus interface {
	Notify(context.Context, desktopNotification) (uint32, error)
	Close(context.Context, uint32) error
}

// sessionBus talks to the notification daemon over the user session bus.
// Each call opens its own connection bound to ctx.
type sessionBus struct{}

func (sessionBus) Notify(ctx context.Context, n desktopNotification) (uint32, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("desktop notify: connect session bus: %w", err)
	}
	defer conn.Close()

	hints := map[string]dbus.Variant{
		"urgency":   dbus.MakeVariant(n.Urgency),
		"transient": dbus.MakeVariant(true),
	}
	call := conn.Object(notificationsDest, notificationsPath).CallWithContext(
		ctx,
		notificationsIface+".Notify",
		0,
		n.AppName,
		n.ReplaceID,
		"",
		n.Summary,
		n.Body,
		[]string{},
		hints,
		n.TimeoutMS,
	)

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}
	return id, nil
}

func (sessionBus) Close(ctx context.Context, id uint32) error {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("desktop dismiss: connect session bus: %w", err)
	}
	defer conn.Close()

	call := conn.Object(notificationsDest, notificationsPath).CallWithContext(ctx, notificationsIface+".CloseNotification", 0, id)
	if call.Err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", call.Err)
	}
	return nil
}
