package apiclient

// LoginResponse is the token payload returned by the login and refresh
// endpoints.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Username     string `json:"username"`
}

// Login authenticates and stores the access token on the client.
func (c *Client) Login(username, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.post("/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

// Refresh exchanges a refresh token for a new token pair and stores the new
// access token on the client.
func (c *Client) Refresh(refreshToken string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.post("/api/v1/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

// Me returns the authenticated username.
func (c *Client) Me() (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	if err := c.get("/api/v1/auth/me", &out); err != nil {
		return "", err
	}
	return out.Username, nil
}
