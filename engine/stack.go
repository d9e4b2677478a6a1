package engine

// PopCards removes up to n cards from the top (end) of stack. It returns the
// remaining stack and the popped cards, top card first.
func PopCards(stack []string, n int) (rest, popped []string) {
	if n <= 0 || len(stack) == 0 {
		return stack, nil
	}
	if n > len(stack) {
		n = len(stack)
	}
	popped = make([]string, 0, n)
	for i := 0; i < n; i++ {
		popped = append(popped, stack[len(stack)-1-i])
	}
	return stack[:len(stack)-n], popped
}

// SplitExtras partitions a deck into its main cards and named extra groups.
// groupOf returns the group name for a card id, or "" for the main deck.
// Group order follows first appearance in the deck.
func SplitExtras(deck []string, groupOf func(id string) string) (main []string, groups []string, extras map[string][]string) {
	extras = make(map[string][]string)
	for _, id := range deck {
		g := ""
		if groupOf != nil {
			g = groupOf(id)
		}
		if g == "" {
			main = append(main, id)
			continue
		}
		if _, seen := extras[g]; !seen {
			groups = append(groups, g)
		}
		extras[g] = append(extras[g], id)
	}
	return main, groups, extras
}
