//go:build linux

package pwar

import "github.com/jochenvg/go-udev"

// AudioDevice describes one sound-card device node discovered on the
// host, used to populate and validate --capture-device/--playback-device
// (§6 names these flags but leaves device enumeration unspecified).
type AudioDevice struct {
	Devnode string
	SysPath string
	CardID  string
}

// ListALSADevices enumerates sound-subsystem device nodes via udev,
// extending the teacher's device-name handling (audio.go) with the
// discovery go-udev already exists in the pack to provide.
func ListALSADevices() ([]AudioDevice, error) {
	u := udev.Udev{}
	enum := u.NewEnumerate()

	if err := enum.AddMatchSubsystem("sound"); err != nil {
		return nil, err
	}

	devices, err := enum.Devices()
	if err != nil {
		return nil, err
	}

	var out []AudioDevice
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		out = append(out, AudioDevice{
			Devnode: node,
			SysPath: d.Syspath(),
			CardID:  d.PropertyValue("ID_ID"),
		})
	}

	return out, nil
}
