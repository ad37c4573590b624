package domain

// AccountsPath is the subtree holding every account of a user.
func AccountsPath(userID UserID) string {
	return "users/" + string(userID) + "/accounts"
}

func AccountPath(userID UserID, accountID AccountID) string {
	return AccountsPath(userID) + "/" + string(accountID)
}

func SessionsPath(userID UserID, accountID AccountID) string {
	return AccountPath(userID, accountID) + "/sessions"
}

func SessionPath(userID UserID, accountID AccountID, sessionID SessionID) string {
	return SessionsPath(userID, accountID) + "/" + string(sessionID)
}
