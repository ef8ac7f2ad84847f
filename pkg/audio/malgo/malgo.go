// Package malgo implements [audio.Source] and [audio.Sink] on top of miniaudio
// through github.com/gen2brain/malgo. Capture and playback are mono 16-bit PCM.
package malgo

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/voxpipe/pkg/audio"
)

// Context owns a miniaudio context shared by every device opened through it.
type Context struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

// NewContext initialises miniaudio with its default backend selection.
func NewContext() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// CaptureDevices lists the available capture devices in backend order.
func (c *Context) CaptureDevices() ([]audio.DeviceInfo, error) {
	infos, err := c.devices(malgo.Capture)
	if err != nil {
		return nil, err
	}
	out := make([]audio.DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = audio.DeviceInfo{Index: i, Name: info.Name(), IsDefault: info.IsDefault != 0}
	}
	return out, nil
}

// Close releases the miniaudio context. Devices opened from c must be closed
// first.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ctx.Uninit()
	c.ctx.Free()
	return nil
}

func (c *Context) devices(kind malgo.DeviceType) ([]malgo.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, audio.ErrClosed
	}
	infos, err := c.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	return infos, nil
}

// deviceConfig builds a mono S16 config for kind, selecting the device at
// index (or the system default when index < 0).
func (c *Context) deviceConfig(kind malgo.DeviceType, index, sampleRate int) (malgo.DeviceConfig, error) {
	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	var infos []malgo.DeviceInfo
	if index >= 0 {
		var err error
		if infos, err = c.devices(kind); err != nil {
			return cfg, err
		}
		if index >= len(infos) {
			return cfg, fmt.Errorf("malgo: device index %d out of range (%d devices)", index, len(infos))
		}
	}

	switch kind {
	case malgo.Capture:
		cfg.Capture.Format = malgo.FormatS16
		cfg.Capture.Channels = 1
		if index >= 0 {
			cfg.Capture.DeviceID = infos[index].ID.Pointer()
		}
	case malgo.Playback:
		cfg.Playback.Format = malgo.FormatS16
		cfg.Playback.Channels = 1
		if index >= 0 {
			cfg.Playback.DeviceID = infos[index].ID.Pointer()
		}
	}
	return cfg, nil
}

// ListDevices opens a temporary context and returns the capture devices.
func ListDevices() ([]audio.DeviceInfo, error) {
	c, err := NewContext()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.CaptureDevices()
}
