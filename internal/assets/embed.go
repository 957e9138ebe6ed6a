package assets

import (
	_ "embed"
)

// NotificationSound is the default alert chime (16-bit mono WAV).
//
//go:embed notification_sound.wav
var NotificationSound []byte
