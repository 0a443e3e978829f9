package xmlbox

import (
	"errors"
	"reflect"
	"testing"
)

func TestUnmarshal_EmbeddedStructs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		target   any
		expected any
		wantErr  error
	}{
		{
			name:   "Basic embedded struct (value)",
			input:  `<p><Name>John Doe</Name><City>New York</City><PostalCode>10001</PostalCode></p>`,
			target: &struct {
				Name string
				Address
			}{},
			expected: &struct {
				Name string
				Address
			}{
				Name:    "John Doe",
				Address: Address{City: "New York", PostalCode: "10001"},
			},
		},
		{
			name:   "Basic embedded struct (pointer)",
			input:  `<p><Name>Jane Doe</Name><City>London</City><PostalCode>SW1A 0AA</PostalCode></p>`,
			target: &struct {
				Name string
				*Address
			}{},
			expected: &struct {
				Name string
				*Address
			}{
				Name:    "Jane Doe",
				Address: &Address{City: "London", PostalCode: "SW1A 0AA"},
			},
		},
		{
			name:   "Embedded struct with tags",
			input:  `<p><User>Alice</User><homeCity>Paris</homeCity><postalCode>75001</postalCode></p>`,
			target: &struct {
				User string
				TaggedAddress
			}{},
			expected: &struct {
				User string
				TaggedAddress
			}{
				User:          "Alice",
				TaggedAddress: TaggedAddress{City: "Paris", PostalCode: "75001"},
			},
		},
		{
			name:   "Embedded fields as attributes",
			input:  `<p Name="Bob" City="Rome" PostalCode="00100"/>`,
			target: &struct {
				Name string
				Address
			}{},
			expected: &struct {
				Name string
				Address
			}{
				Name:    "Bob",
				Address: Address{City: "Rome", PostalCode: "00100"},
			},
		},
		{
			name:   "Field shadowing by outer struct",
			input:  `<p><ID>7</ID><Name>Carol</Name></p>`,
			target: &struct {
				Name string
				UserWithID
			}{},
			expected: &struct {
				Name string
				UserWithID
			}{
				Name:       "Carol",
				UserWithID: UserWithID{ID: 7},
			},
		},
		{
			name:   "Nested embedded structs",
			input:  `<p><City>Berlin</City><PostalCode>10115</PostalCode><countryName>Germany</countryName></p>`,
			target: &struct {
				DetailedAddress
			}{},
			expected: &struct {
				DetailedAddress
			}{
				DetailedAddress: DetailedAddress{
					Address: Address{City: "Berlin", PostalCode: "10115"},
					Country: Country{Name: "Germany"},
				},
			},
		},
		{
			name:   "Nested embedded structs with pointer",
			input:  `<p><City>Madrid</City><PostalCode>28001</PostalCode><countryName>Spain</countryName></p>`,
			target: &struct {
				*DetailedAddress
			}{},
			expected: &struct {
				*DetailedAddress
			}{
				DetailedAddress: &DetailedAddress{
					Address: Address{City: "Madrid", PostalCode: "28001"},
					Country: Country{Name: "Spain"},
				},
			},
		},
		{
			name:  "Embedded field with no corresponding input is required",
			input: `<p><Name>Dave</Name><City>Paris</City></p>`,
			target: &struct {
				Name string
				Address
			}{},
			wantErr: ErrMissingRequiredValue,
		},
		{
			name:   "Optional embedded fields",
			input:  `<p><Street>Main St</Street></p>`,
			target: &struct {
				OptionalContact
			}{},
			expected: &struct {
				OptionalContact
			}{
				OptionalContact: OptionalContact{Street: "Main St"},
			},
		},
		{
			name:   "Multiple embedded structs, with name collision, shallower takes precedence",
			input:  `<p><Name>Grace</Name><CommonField>outer value</CommonField></p>`,
			target: &struct {
				Name        string
				CommonField string
				Embedded1
				Embedded2
			}{},
			expected: &struct {
				Name        string
				CommonField string
				Embedded1
				Embedded2
			}{
				Name:        "Grace",
				CommonField: "outer value",
			},
		},
		{
			name:   "Multiple embedded structs, with name collision, first declared takes precedence",
			input:  `<p><Name>Heidi</Name><CommonField>embedded1 value</CommonField></p>`,
			target: &struct {
				Name string
				Embedded1
				Embedded2
			}{},
			expected: &struct {
				Name string
				Embedded1
				Embedded2
			}{
				Name:      "Heidi",
				Embedded1: Embedded1{CommonField: "embedded1 value"},
			},
		},
		{
			name:   "Case-insensitive matching for embedded fields",
			input:  `<p><Name>Ivan</Name><city>Helsinki</city><POSTALCODE>00100</POSTALCODE></p>`,
			target: &struct {
				Name string
				Address
			}{},
			expected: &struct {
				Name string
				Address
			}{
				Name:    "Ivan",
				Address: Address{City: "Helsinki", PostalCode: "00100"},
			},
		},
		{
			name:   "Mixed case and tag precedence for embedded fields",
			input:  `<p><User>Julia</User><homecity>Stockholm</homecity><postalCode>11187</postalCode></p>`,
			target: &struct {
				User string
				TaggedAddress
			}{},
			expected: &struct {
				User string
				TaggedAddress
			}{
				User:          "Julia",
				TaggedAddress: TaggedAddress{City: "Stockholm", PostalCode: "11187"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Unmarshal([]byte(tt.input), tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Unmarshal() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Unmarshal() error = %v", err)
				return
			}
			if !reflect.DeepEqual(tt.target, tt.expected) {
				t.Errorf("Unmarshal() got = %v, want %v", tt.target, tt.expected)
			}
		})
	}
}

func TestMarshal_EmbeddedStructs(t *testing.T) {
	v := struct {
		Name string
		*Address
		TaggedAddress
	}{
		Name:          "Kim",
		TaggedAddress: TaggedAddress{City: "Aarhus", PostalCode: "8000"},
	}
	b, err := Marshal(v, RootKey("p"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	// The nil *Address contributes nothing.
	want := `<p><Name>Kim</Name><homeCity>Aarhus</homeCity><postalCode>8000</postalCode></p>`
	if string(b) != want {
		t.Errorf("Marshal() got = %s, want %s", b, want)
	}
}

// Helper structs for testing
type Address struct {
	City       string
	PostalCode string
}

type TaggedAddress struct {
	City       string `xmlbox:"homeCity"`
	PostalCode string `xmlbox:"postalCode"`
}

type UserWithID struct {
	ID   int
	Name string
}

type Country struct {
	Name string `xmlbox:"countryName"`
}

type DetailedAddress struct {
	Address
	Country
}

type OptionalContact struct {
	Street  string `xmlbox:"Street,omitempty"`
	Website string `xmlbox:"Website,omitempty"`
}

type Embedded1 struct {
	CommonField string
}

type Embedded2 struct {
	CommonField string
}
