package internal

import "testing"

// TestFlattenNestedAndArray tests that a nested map with an array is flattened correctly.
func TestFlattenNestedAndArray(t *testing.T) {
	input := map[string]interface{}{
		"comment": map[string]interface{}{
			"flags": map[string]interface{}{"force": true},
		},
		"tags": []interface{}{"a", "b"},
	}

	flat := Flatten(input)
	if flat["comment.flags.force"] != true {
		t.Fatalf("expected comment.flags.force to be true")
	}
	if _, ok := flat["tags"]; !ok {
		t.Fatalf("expected tags to exist")
	}
	if flat["tags[1]"] != "b" {
		t.Fatalf("expected tags[1] to be b, got %v", flat["tags[1]"])
	}
}
