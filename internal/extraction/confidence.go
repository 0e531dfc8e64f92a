package extraction

// AggregateConfidence computes the overall confidence for a merged result
// from the per-category confidences the passes reported. Per category, all
// reported values are averaged; the overall score is the mean across
// categories that reported anything, scaled to 0-100. Categories no pass
// reported are excluded rather than counted as zero; a document with no
// easements is not less trustworthy for it.
//
// The second return is false when no pass reported any confidence at all;
// the overall score is then undefined and must not be presented as zero.
func AggregateConfidence(outputs ...*StageOutput) (float64, bool) {
	var sum float64
	var reported int
	for _, c := range Categories() {
		var catSum float64
		var catN int
		for _, out := range outputs {
			if v, ok := out.CategoryConfidence(c); ok {
				catSum += clamp01(v)
				catN++
			}
		}
		if catN == 0 {
			continue
		}
		sum += catSum / float64(catN)
		reported++
	}
	if reported == 0 {
		return 0, false
	}
	return sum / float64(reported) * 100, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
