package jobtype

import (
	"encoding/json"
	"fmt"

	"github.com/hgonomeg/bansu/internal/bansu/job"
)

// FromRequest decodes rawSpec (the /run request body's job-type-specific
// payload) into the job.Job strategy named by jobType, defaulting to
// "acedrg" for backward compatibility with original_source's single
// /run_acedrg endpoint.
func FromRequest(jobType string, rawSpec json.RawMessage) (job.Job, error) {
	if jobType == "" {
		jobType = "acedrg"
	}

	switch jobType {
	case "acedrg":
		var spec AcedrgSpec
		if err := json.Unmarshal(rawSpec, &spec); err != nil {
			return nil, fmt.Errorf("decoding acedrg spec: %w", err)
		}
		return NewAcedrg(spec), nil

	case "servalcat":
		var spec ServalcatSpec
		if err := json.Unmarshal(rawSpec, &spec); err != nil {
			return nil, fmt.Errorf("decoding servalcat spec: %w", err)
		}
		return NewServalcat(spec), nil

	case "chemdrasil":
		var spec ChemdrasilSpec
		if err := json.Unmarshal(rawSpec, &spec); err != nil {
			return nil, fmt.Errorf("decoding chemdrasil spec: %w", err)
		}
		return NewChemdrasil(spec), nil

	default:
		return nil, fmt.Errorf("unknown job_type %q", jobType)
	}
}
