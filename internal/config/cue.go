package config

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// decodeCUE evaluates data as CUE. JSON input takes the same path.
func decodeCUE(file string, data []byte) (*document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(file))
	if err := v.Err(); err != nil {
		return nil, cueLoadError(file, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(file, err)
	}

	var doc document
	if err := v.Decode(&doc); err != nil {
		return nil, cueLoadError(file, err)
	}
	return &doc, nil
}

func cueLoadError(file string, err error) *LoadError {
	le := &LoadError{Code: ErrCodeParseFailed, File: file, Message: cueerrors.Details(err, nil), Err: err}
	for _, pos := range cueerrors.Positions(err) {
		if pos.IsValid() {
			le.Line = pos.Line()
			break
		}
	}
	return le
}
