package files

import (
	"fmt"

	"github.com/roach88/ddnet/internal/ir"
)

// record is one YAML document of a transaction file.
type record struct {
	Version string      `yaml:"version,omitempty"`
	Seq     int64       `yaml:"seq"`
	Updates []ir.Update `yaml:"updates"`
}

func toRecord(txn ir.Txn) record {
	return record{Version: ir.FileVersion, Seq: txn.Seq, Updates: txn.Updates}
}

func (r record) txn() (ir.Txn, error) {
	if r.Version != "" && r.Version != ir.FileVersion {
		return ir.Txn{}, fmt.Errorf("unsupported file version %q (want %q)", r.Version, ir.FileVersion)
	}
	for i, u := range r.Updates {
		if u.Kind != ir.Insert && u.Kind != ir.Delete {
			return ir.Txn{}, fmt.Errorf("update %d: missing op", i)
		}
	}
	return ir.Txn{Seq: r.Seq, Updates: r.Updates}, nil
}
