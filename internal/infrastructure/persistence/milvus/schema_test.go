package milvus

import "testing"

func TestPartitionName(t *testing.T) {
	tests := map[string]string{
		"3f2b9c1e-1111-4a2b-9c3d-000000000001": "campaign_3f2b9c1e_1111_4a2b_9c3d_000000000001",
		"plain_id":                             "campaign_plain_id",
	}
	for in, want := range tests {
		if got := PartitionName(in); got != want {
			t.Errorf("PartitionName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTurnMemoriesSchema(t *testing.T) {
	s := TurnMemoriesSchema(768)
	if s.CollectionName != CollectionTurnMemories {
		t.Fatalf("collection = %q", s.CollectionName)
	}
	var dim string
	for _, f := range s.Fields {
		if f.Name == fieldVector {
			dim = f.TypeParams["dim"]
		}
		if f.PrimaryKey && f.Name != fieldTurnID {
			t.Fatalf("primary key = %q, want turn_id", f.Name)
		}
	}
	if dim != "768" {
		t.Fatalf("vector dim = %q, want 768", dim)
	}
}
