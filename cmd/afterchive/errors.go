package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/fgeck/afterchive/internal/apperr"
)

// reportError prints err for the user. Classified errors get their own
// message; anything else is logged in full at debug level only.
func reportError(w io.Writer, err error, usage bool) {
	if usage {
		_, _ = fmt.Fprintf(w, "Error: %v\nRun 'afterchive --help' for usage.\n", err)
		return
	}

	if errors.Is(err, context.Canceled) {
		log.Error().Msg("interrupted; temporary files were removed")
		return
	}

	if e, ok := apperr.As(err); ok {
		event := log.Error().
			Str("kind", string(e.Kind)).
			Str("reason", string(e.Reason))
		if e.Cause != nil {
			log.Debug().Err(e.Cause).Msg("underlying error")
		}
		event.Msg(e.Message)
		return
	}

	log.Debug().Err(err).Msg("unclassified error")
	log.Error().Msg("unexpected error; rerun with --verbose for details")
}
