package record

import (
	"math/rand/v2"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

// SizeRange is an inclusive byte range for synthetic response sizes.
type SizeRange struct {
	Min int
	Max int
}

// Contains reports whether n lies inside the range.
func (r SizeRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// Synthetic size ranges. None of these are measured values.
var (
	FileSizes      = SizeRange{100000, 5000000}
	AdminSizes     = SizeRange{50000, 200000}
	ContentSizes   = SizeRange{30000, 100000}
	PageSizes      = SizeRange{10000, 50000}
	LoginSizes     = SizeRange{800, 1200}
	LogoutSizes    = SizeRange{600, 1000}
	RegisterSizes  = SizeRange{1000, 1500}
	SubscribeSizes = SizeRange{500, 1000}
)

// nominalFileSizes are the human-readable sizes used in FILE tags.
var nominalFileSizes = map[string]string{
	"pdf":  "2.5MB",
	"jpg":  "1.2MB",
	"jpeg": "1.2MB",
	"png":  "1.5MB",
	"mp3":  "8.5MB",
	"mp4":  "45MB",
	"doc":  "1.8MB",
	"docx": "2.1MB",
	"zip":  "15MB",
}

const defaultNominalSize = "1.0MB"

// NominalSize returns the approximate size label for a file extension.
func NominalSize(ext string) string {
	if s, ok := nominalFileSizes[ext]; ok {
		return s
	}
	return defaultNominalSize
}

// RangeFor picks the synthetic size range for a classified request.
func RangeFor(cr domain.ClassificationResult, rs domain.RoutingState) SizeRange {
	switch {
	case cr.IsFile():
		return FileSizes
	case cr.PageCategory == domain.PageAdmin:
		return AdminSizes
	case rs.IsSingle || rs.IsPage:
		return ContentSizes
	default:
		return PageSizes
	}
}

// draw returns a value in r using intn, which must behave like rand.IntN.
func (r SizeRange) draw(intn func(int) int) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + intn(r.Max-r.Min+1)
}

func defaultIntN(n int) int {
	return rand.IntN(n)
}
