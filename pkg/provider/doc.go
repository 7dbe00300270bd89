// Package provider hosts the concrete identity provider integrations
// that plug into the gateway behind the auth.Provider interface.
//
// openid is the shared OIDC authorization-code implementation used by
// the aad and google providers; oauthsite is the shared plain-OAuth2
// implementation used by facebook and twitter; local grants a fixed
// development identity.
package provider
