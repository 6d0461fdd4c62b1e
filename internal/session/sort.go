package session

import (
	"sort"

	"consentwallet/internal/domain"
)

func sortedIdentifiers(m map[string]domain.Identifier) []domain.Identifier {
	out := make([]domain.Identifier, 0, len(m))
	for _, id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

func sortInfos(infos []domain.IDProviderInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].UUID < infos[j].UUID })
}
