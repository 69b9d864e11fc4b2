package session

import "testing"

// FuzzSessionDecode exercises the binary session decoder with arbitrary inputs.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(&Session{
		Email:     "admin@example.com",
		CreatedAt: 1700000000,
		ExpiresAt: 1700086400,
	})
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:5])
	}
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{1, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(s); err != nil {
			t.Fatalf("re-encode of decoded record failed: %v", err)
		}
	})
}
