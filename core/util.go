package spotnode

func itemInSlice(search string, items []string) bool {
	for _, item := range items {
		if search == item {
			return true
		}
	}
	return false
}
