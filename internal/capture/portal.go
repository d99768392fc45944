package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	portalDest          = "org.freedesktop.portal.Desktop"
	portalPath          = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	portalScreenshot    = "org.freedesktop.portal.Screenshot.Screenshot"
	portalRequestIface  = "org.freedesktop.portal.Request"
	portalResponseEvent = "Response"
)

// Portal response codes from org.freedesktop.portal.Request::Response.
const (
	portalResponseSuccess   uint32 = 0
	portalResponseCancelled uint32 = 1
)

// Portal requests a screenshot through xdg-desktop-portal. The portal owns
// the permission dialog, so a refusal surfaces as ErrPermissionDenied.
type Portal struct {
	Interactive bool
	// KeepFile leaves the portal's output file on disk after Stop.
	KeepFile bool
}

func NewPortal(interactive bool) *Portal {
	return &Portal{Interactive: interactive}
}

func (*Portal) Kind() Kind { return KindScreenShare }

func (*Portal) Name() string { return "portal" }

func (p *Portal) Open(ctx context.Context) (Stream, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: connect session bus: %w", ErrCaptureFailed, err)
	}
	defer conn.Close()

	names := conn.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: session bus returned no unique name", ErrCaptureFailed)
	}
	token := handleToken()
	requestPath := portalRequestPath(names[0], token)

	if err := conn.AddMatchSignalContext(
		ctx,
		dbus.WithMatchObjectPath(requestPath),
		dbus.WithMatchInterface(portalRequestIface),
		dbus.WithMatchMember(portalResponseEvent),
	); err != nil {
		return nil, fmt.Errorf("%w: subscribe portal response: %w", ErrCaptureFailed, err)
	}

	signals := make(chan *dbus.Signal, 4)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
		"interactive":  dbus.MakeVariant(p.Interactive),
	}
	var handle dbus.ObjectPath
	call := conn.Object(portalDest, portalPath).CallWithContext(ctx, portalScreenshot, 0, "", options)
	if err := call.Store(&handle); err != nil {
		return nil, fmt.Errorf("%w: portal screenshot call: %w", ErrCaptureFailed, err)
	}
	if handle.IsValid() && handle != requestPath {
		// Older portals ignore handle_token.
		requestPath = handle
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil, fmt.Errorf("%w: session bus closed while waiting for portal", ErrCaptureFailed)
			}
			if sig.Path != requestPath || sig.Name != portalRequestIface+"."+portalResponseEvent {
				continue
			}
			uri, err := parsePortalResponse(sig.Body)
			if err != nil {
				return nil, err
			}
			return p.openFile(uri)
		}
	}
}

func (p *Portal) openFile(uri string) (Stream, error) {
	path, err := fileURIPath(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open portal image: %w", ErrCaptureFailed, err)
	}
	img, _, decodeErr := image.Decode(f)
	_ = f.Close()

	release := func() error {
		if p.KeepFile {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if decodeErr != nil {
		_ = release()
		return nil, fmt.Errorf("%w: decode portal image: %w", ErrCaptureFailed, decodeErr)
	}
	return &decodedStream{img: img, release: release}, nil
}

// portalRequestPath derives the Request object path the portal will use for
// sender and token.
func portalRequestPath(sender string, token string) dbus.ObjectPath {
	sender = strings.TrimPrefix(sender, ":")
	sender = strings.ReplaceAll(sender, ".", "_")
	return dbus.ObjectPath("/org/freedesktop/portal/desktop/request/" + sender + "/" + token)
}

func handleToken() string {
	return "sayshot_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func parsePortalResponse(body []any) (string, error) {
	if len(body) < 2 {
		return "", fmt.Errorf("%w: malformed portal response", ErrCaptureFailed)
	}
	code, ok := body[0].(uint32)
	if !ok {
		return "", fmt.Errorf("%w: malformed portal response code %T", ErrCaptureFailed, body[0])
	}
	switch code {
	case portalResponseSuccess:
	case portalResponseCancelled:
		return "", ErrPermissionDenied
	default:
		return "", fmt.Errorf("%w: portal response code %d", ErrCaptureFailed, code)
	}

	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return "", fmt.Errorf("%w: malformed portal results %T", ErrCaptureFailed, body[1])
	}
	uriVariant, ok := results["uri"]
	if !ok {
		return "", fmt.Errorf("%w: portal response missing uri", ErrCaptureFailed)
	}
	uri, ok := uriVariant.Value().(string)
	if !ok || strings.TrimSpace(uri) == "" {
		return "", fmt.Errorf("%w: portal response has empty uri", ErrCaptureFailed)
	}
	return uri, nil
}

func fileURIPath(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse portal uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported portal uri scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("portal uri %q has no path", raw)
	}
	return u.Path, nil
}
