package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strs(t *testing.T, addrs []Address) []string {
	t.Helper()
	return NewAddressSet(addrs...).Strings()
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		desired    []string
		current    []string
		wantAdd    []string
		wantRemove []string
	}{
		{
			name:    "first run",
			desired: []string{"1.1.1.1", "2.2.2.2"},
			wantAdd: []string{"1.1.1.1", "2.2.2.2"},
		},
		{
			name:    "no change",
			desired: []string{"1.1.1.1", "2001:db8::1"},
			current: []string{"2001:db8::1", "1.1.1.1"},
		},
		{
			name:       "churn",
			desired:    []string{"1.1.1.1", "3.3.3.3", "2001:db8::3"},
			current:    []string{"1.1.1.1", "2.2.2.2", "2001:db8::1"},
			wantAdd:    []string{"3.3.3.3", "2001:db8::3"},
			wantRemove: []string{"2.2.2.2", "2001:db8::1"},
		},
		{
			name:       "empty desired",
			current:    []string{"10.0.0.9", "10.0.0.10"},
			wantRemove: []string{"10.0.0.9", "10.0.0.10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desired := MustParseAddressSet(tt.desired...)
			current := MustParseAddressSet(tt.current...)

			d := Diff(desired, current)

			assert.Equal(t, MustParseAddressSet(tt.wantAdd...).Strings(), strs(t, d.Add))
			assert.Equal(t, MustParseAddressSet(tt.wantRemove...).Strings(), strs(t, d.Remove))
			assert.Equal(t, len(tt.wantAdd) == 0 && len(tt.wantRemove) == 0, d.Empty())
		})
	}
}

// Add and Remove never overlap and applying the delta always yields desired.
func TestDiffConverges(t *testing.T) {
	pool := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "10.0.0.9", "10.0.0.10", "2001:db8::1", "2001:db8::2", "::1"}

	for mask := 0; mask < 1<<len(pool); mask += 7 {
		var desired, current []string
		for i, a := range pool {
			if mask&(1<<i) != 0 {
				desired = append(desired, a)
			}
			if (mask>>1)&(1<<i) == 0 {
				current = append(current, a)
			}
		}
		d := MustParseAddressSet(desired...)
		c := MustParseAddressSet(current...)

		delta := Diff(d, c)

		add := NewAddressSet(delta.Add...)
		for _, r := range delta.Remove {
			assert.False(t, add.Contains(r), "address %s both added and removed", r)
		}
		assert.True(t, d.Equal(delta.Apply(c)), "desired=%v current=%v", d, c)
	}
}

func TestDeltaFamily(t *testing.T) {
	d := Diff(
		MustParseAddressSet("1.1.1.1", "2001:db8::1"),
		MustParseAddressSet("2.2.2.2", "2001:db8::2"),
	)

	v4 := d.Family(FamilyV4)
	v6 := d.Family(FamilyV6)

	assert.Equal(t, []string{"1.1.1.1"}, strs(t, v4.Add))
	assert.Equal(t, []string{"2.2.2.2"}, strs(t, v4.Remove))
	assert.Equal(t, []string{"2001:db8::1"}, strs(t, v6.Add))
	assert.Equal(t, []string{"2001:db8::2"}, strs(t, v6.Remove))
}
