package handlers

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func parseClaims(c echo.Context, jwtSecret []byte) (jwt.MapClaims, error) {
	cookie, err := c.Cookie("accessToken")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing auth cookie")
	}
	tokenString := cookie.Value
	if tokenString == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token: "+err.Error())
	}
	if !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// GetID extracts the authenticated user id from the access token cookie.
func GetID(c echo.Context, jwtSecret []byte) (string, error) {
	claims, err := parseClaims(c, jwtSecret)
	if err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid subject claim")
	}
	return sub, nil
}

// GetIDAndRole returns the subject and role claims together.
func GetIDAndRole(c echo.Context, jwtSecret []byte) (string, string, error) {
	claims, err := parseClaims(c, jwtSecret)
	if err != nil {
		return "", "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "invalid subject claim")
	}
	role, _ := claims["role"].(string)
	return sub, role, nil
}

// GetAdminID is GetID plus an admin role check.
func GetAdminID(c echo.Context, jwtSecret []byte) (string, error) {
	claims, err := parseClaims(c, jwtSecret)
	if err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid subject claim")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return "", echo.NewHTTPError(http.StatusForbidden, "Permission denied. Only administrators can update order status.")
	}
	return sub, nil
}
