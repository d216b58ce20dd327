package embedding

// tokenize splits text into whitespace-separated words and produces
// BERT-style padded inputs (input_ids, attention_mask, token_type_ids)
// up to maxTokens, with hash-derived token IDs.
func tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1

	pos := 1
	word := ""
	emit := func(w string) {
		if pos >= maxTokens-1 {
			return
		}
		inputIDs[pos] = int64(hashString(w) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				emit(word)
				word = ""
			}
			continue
		}
		word += string(r)
	}
	if word != "" {
		emit(word)
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}
