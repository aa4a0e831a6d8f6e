package receiver

// SourceByName returns the source whose display name matches exactly.
func (s Snapshot) SourceByName(name string) (Source, bool) {
	for _, source := range s.Sources {
		if source.Name == name {
			return source, true
		}
	}
	return Source{}, false
}

// SourceByID returns the source with the given device identifier.
func (s Snapshot) SourceByID(id string) (Source, bool) {
	if id == "" {
		return Source{}, false
	}
	for _, source := range s.Sources {
		if source.ID == id {
			return source, true
		}
	}
	return Source{}, false
}

// CurrentSource resolves the active source identifier against the source
// list. Identifiers and display names are not interchangeable, so an
// identifier missing from the list yields ok=false rather than the raw id.
func (s Snapshot) CurrentSource() (Source, bool) {
	return s.SourceByID(s.Playback.SourceID)
}

// SourceNames returns display names in device order.
func (s Snapshot) SourceNames() []string {
	names := make([]string, 0, len(s.Sources))
	for _, source := range s.Sources {
		names = append(names, source.Name)
	}
	return names
}

// VolumeLevel returns the volume as a fraction in [0, 1].
func (s Snapshot) VolumeLevel() (float64, bool) {
	if s.Playback.VolumePercent == nil {
		return 0, false
	}
	return float64(*s.Playback.VolumePercent) / 100, true
}
