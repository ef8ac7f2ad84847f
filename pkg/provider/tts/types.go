package tts

// VoiceProfile selects the voice a stream is synthesized with.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// SpeedFactor adjusts speaking rate (0.7–1.3, 1.0 = default). Zero means
	// the provider default.
	SpeedFactor float64
}
