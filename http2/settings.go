package http2

// Settings holds one direction's negotiated SETTINGS values (spec §3.2:
// a connection keeps tx_settings, what the peer must honor once we've
// sent it and they've ACKed, and rx_settings, what we honor once we've
// ACKed theirs). Defaults match RFC 7540 §6.5.2.
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32 // 0 means unlimited
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32 // 0 means unlimited (advisory only)
}

func defaultSettings() Settings {
	return Settings{
		HeaderTableSize:      4096,
		EnablePush:           true,
		MaxConcurrentStreams: 0,
		InitialWindowSize:    65535,
		MaxFrameSize:         16384,
		MaxHeaderListSize:    0,
	}
}

func (s *Settings) asFrameSettings() []Setting {
	return []Setting{
		{SettingHeaderTableSize, s.HeaderTableSize},
		{SettingEnablePush, boolToUint32(s.EnablePush)},
		{SettingMaxConcurrentStreams, s.MaxConcurrentStreams},
		{SettingInitialWindowSize, s.InitialWindowSize},
		{SettingMaxFrameSize, s.MaxFrameSize},
		{SettingMaxHeaderListSize, s.MaxHeaderListSize},
	}
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// applySetting validates and applies a single incoming setting to s,
// following the effects table in spec §4.2.6. It returns the delta to
// apply to InitialWindowSize, if any, so the caller can retroactively
// adjust open stream windows (zero otherwise).
func (s *Settings) applySetting(set Setting) (windowDelta int32, err error) {
	switch set.ID {
	case SettingHeaderTableSize:
		s.HeaderTableSize = set.Val
	case SettingEnablePush:
		if set.Val > 1 {
			return 0, ConnectionError(ErrCodeProtocol)
		}
		s.EnablePush = set.Val == 1
	case SettingMaxConcurrentStreams:
		s.MaxConcurrentStreams = set.Val
	case SettingInitialWindowSize:
		if set.Val > maxWindowSize {
			return 0, ConnectionError(ErrCodeFlowControl)
		}
		old := s.InitialWindowSize
		s.InitialWindowSize = set.Val
		return int32(set.Val) - int32(old), nil
	case SettingMaxFrameSize:
		if set.Val < 16384 || set.Val > 16777215 {
			return 0, ConnectionError(ErrCodeProtocol)
		}
		s.MaxFrameSize = set.Val
	case SettingMaxHeaderListSize:
		s.MaxHeaderListSize = set.Val
	default:
		// Unknown ids are ignored, per spec §4.2.6.
	}
	return 0, nil
}
