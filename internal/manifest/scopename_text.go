package manifest

// MarshalText and UnmarshalText let BurntSushi/toml (and any other
// encoding.TextMarshaler-aware codec) read/write a ScopeName as the
// plain "scope/name" string a human edits, instead of a nested table.

func (sn ScopeName) MarshalText() ([]byte, error) {
	return []byte(sn.String()), nil
}

func (sn *ScopeName) UnmarshalText(text []byte) error {
	parsed, err := ParseScopeName(string(text))
	if err != nil {
		return err
	}
	*sn = parsed
	return nil
}
