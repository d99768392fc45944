package indicator

type messages struct {
	summary    string
	processing string
	errorText  string
}

var defaultMessages = messages{
	summary:    "sayshot",
	processing: "Working…",
	errorText:  "Something went wrong",
}
