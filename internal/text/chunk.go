package text

// Windows splits a padded token-id sequence into consecutive windows of
// exactly size tokens, used when a prompt's padded length exceeds the
// tokenizer's single-pass limit. ids is expected to already be a multiple
// of size (Prepare guarantees this); a final short window is padded with
// padID defensively.
func Windows(ids []int64, size int, padID int64) [][]int64 {
	if size <= 0 {
		return [][]int64{ids}
	}

	var out [][]int64

	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			window := make([]int64, size)
			copy(window, ids[start:])

			for i := len(ids) - start; i < size; i++ {
				window[i] = padID
			}

			out = append(out, window)

			break
		}

		out = append(out, append([]int64(nil), ids[start:end]...))
	}

	if len(out) == 0 {
		out = append(out, padTo(nil, size, padID))
	}

	return out
}
