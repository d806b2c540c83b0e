package audio

import "runtime"

// DeviceHint returns a platform-specific remediation hint for microphone
// access failures, suitable for showing directly to the user.
func DeviceHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "grant microphone access in System Settings > Privacy & Security > Microphone"
	case "windows":
		return "grant microphone access in Settings > Privacy > Microphone"
	default:
		return "check that a microphone is connected and not in use by another application"
	}
}
