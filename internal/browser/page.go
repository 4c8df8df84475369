package browser

import (
	"context"
	"errors"
	"strings"

	"coupon-clipper/internal/config"
)

var (
	// ErrStale: элемент пропал из DOM (перерисовка страницы).
	ErrStale = errors.New("element is stale")
	// ErrNotConnected: нет активного соединения с браузером.
	ErrNotConnected = errors.New("browser is not connected")
	// ErrReconnectExhausted: исчерпаны попытки переподключения.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Box: прямоугольник элемента в координатах страницы.
type Box struct {
	X, Y, Width, Height float64
}

func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Page: операции над вкладкой, нужные циклу активации купонов.
type Page interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	// Find ищет элементы по CSS и, если задан Text, фильтрует по вхождению текста.
	Find(ctx context.Context, sel config.Selector) ([]Element, error)
	ScrollHeight(ctx context.Context) (float64, error)
	ScrollTo(ctx context.Context, y float64) error
	MoveMouse(ctx context.Context, x, y float64) error
	ClickAt(ctx context.Context, x, y float64) error
}

// Element: кнопка купона или "load more".
type Element interface {
	// ID стабилен между повторными поисками того же узла.
	ID() string
	Text() (string, error)
	// Attribute возвращает значение и признак наличия атрибута.
	Attribute(name string) (string, bool, error)
	Visible() (bool, error)
	Box() (Box, error)
	ScrollIntoView() error
	Click() error
	JSClick() error
	ParentJSClick() error
	PressEnter() error
}

var staleMarkers = []string{
	"no node with given id",
	"could not find node",
	"node is detached",
	"node with given id does not belong",
	"cannot find context with specified id",
	"object reference chain is too long",
	"cannot find object with id",
}

// IsStaleError распознаёт ошибки DevTools об отсоединённом узле.
func IsStaleError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStale) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range staleMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var connectionMarkers = []string{
	"websocket",
	"connection refused",
	"connection reset",
	"broken pipe",
	"use of closed network connection",
	"target closed",
	"session closed",
	"eof",
}

// IsConnectionError распознаёт потерю соединения с браузером.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if IsStaleError(err) && !errors.Is(err, ErrStale) {
		return errors.Join(ErrStale, err)
	}
	return err
}
