package gotd

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"tg-gateway/backend/internal/telegram"
)

func (c *Conn) Authorized(ctx context.Context) (bool, error) {
	st, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("gotd: auth status: %w", err)
	}
	return st.Authorized, nil
}

func (c *Conn) SendCode(ctx context.Context, phone string) (telegram.SendCodeResult, error) {
	sc, err := c.api.AuthSendCode(ctx, &tg.AuthSendCodeRequest{
		PhoneNumber: phone,
		APIID:       c.appID,
		APIHash:     c.appHash,
		Settings:    tg.CodeSettings{},
	})
	if err != nil {
		if res, ok := sendCodeOutcome(err); ok {
			return res, nil
		}
		return telegram.SendCodeResult{}, err
	}
	return sentCode(sc), nil
}

func (c *Conn) ResendCode(ctx context.Context, phone, phoneCodeHash string) (telegram.SendCodeResult, error) {
	sc, err := c.api.AuthResendCode(ctx, &tg.AuthResendCodeRequest{
		PhoneNumber:   phone,
		PhoneCodeHash: phoneCodeHash,
	})
	if err != nil {
		if res, ok := sendCodeOutcome(err); ok {
			return res, nil
		}
		return telegram.SendCodeResult{}, err
	}
	return sentCode(sc), nil
}

func (c *Conn) SignIn(ctx context.Context, phone, code, phoneCodeHash string) (telegram.SignInResult, error) {
	if _, err := c.client.Auth().SignIn(ctx, phone, code, phoneCodeHash); err != nil {
		if res, ok := signInOutcome(err); ok {
			return res, nil
		}
		return telegram.SignInResult{}, err
	}
	return telegram.SignInResult{Outcome: telegram.SignInOK}, nil
}

func (c *Conn) CheckPassword(ctx context.Context, password string) (telegram.SignInResult, error) {
	if _, err := c.client.Auth().Password(ctx, password); err != nil {
		if res, ok := signInOutcome(err); ok {
			return res, nil
		}
		return telegram.SignInResult{}, err
	}
	return telegram.SignInResult{Outcome: telegram.SignInOK}, nil
}

func (c *Conn) LogOut(ctx context.Context) error {
	if _, err := c.api.AuthLogOut(ctx); err != nil {
		return fmt.Errorf("gotd: log out: %w", err)
	}
	return nil
}

func (c *Conn) Self(ctx context.Context) (telegram.User, error) {
	me, err := c.client.Self(ctx)
	if err != nil {
		return telegram.User{}, callError(err)
	}
	return toUser(me), nil
}
