package news

import (
	"fmt"

	"github.com/civiclab-mx/observatorio/internal/harvest"
	"github.com/civiclab-mx/observatorio/internal/storage"
)

// BuildSources constructs the sources for the named outlets with their
// default configurations. Unknown outlet names are an error so config
// typos surface at startup instead of as silently missing outlets.
func BuildSources(outlets []string, fetcher *harvest.Fetcher, checkpoints *storage.Checkpoints) ([]Source, error) {
	sources := make([]Source, 0, len(outlets))
	for _, outlet := range outlets {
		switch outlet {
		case "jornada":
			sources = append(sources, NewJornada(fetcher, checkpoints, nil))
		case "proceso":
			sources = append(sources, NewProceso(fetcher, nil))
		case "economista":
			sources = append(sources, NewEconomista(fetcher, checkpoints, nil))
		case "financiero":
			sources = append(sources, NewFinanciero(fetcher, checkpoints, nil))
		case "animalpolitico":
			sources = append(sources, NewAnimalPolitico(fetcher, checkpoints, nil))
		default:
			return nil, fmt.Errorf("unknown outlet %q", outlet)
		}
	}
	return sources, nil
}
