/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"fmt"

	"github.com/dgraph-io/gqlparser/v2/gqlerror"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/graphql-apq/x"
)

// AsGQLErrors turns err into the list of GraphQL errors sent to the client.
// GraphQL errors, from gqlparser or x, keep their locations and extensions even
// when wrapped with pkg/errors; anything else becomes a single error carrying
// err's message.  A nil err gives a nil list.
func AsGQLErrors(err error) x.GqlErrorList {
	if err == nil {
		return nil
	}

	var list x.GqlErrorList
	var one *x.GqlError
	var parsed gqlerror.List
	var parsedOne *gqlerror.Error
	switch {
	case errors.As(err, &list):
		return list
	case errors.As(err, &one):
		return x.GqlErrorList{one}
	case errors.As(err, &parsed):
		for _, e := range parsed {
			list = append(list, fromParser(e))
		}
		return list
	case errors.As(err, &parsedOne):
		return x.GqlErrorList{fromParser(parsedOne)}
	default:
		return x.GqlErrorList{&x.GqlError{Message: err.Error()}}
	}
}

func fromParser(err *gqlerror.Error) *x.GqlError {
	out := &x.GqlError{Message: err.Message, Extensions: err.Extensions}
	for _, loc := range err.Locations {
		out.Locations = append(out.Locations, x.Location{Line: loc.Line, Column: loc.Column})
	}
	for _, p := range err.Path {
		out.Path = append(out.Path, p)
	}
	return out
}

// GQLWrapf wraps err as a GraphQL error whose message is the formatted prefix
// followed by err's message.  Locations and path survive the wrapping.  A nil
// err gives nil.
func GQLWrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	prefix := fmt.Sprintf(format, args...)
	switch err := err.(type) {
	case *x.GqlError:
		return x.GqlErrorf("%s because %s", prefix, err.Message).
			WithLocations(err.Locations...).
			WithPath(err.Path)
	case x.GqlErrorList:
		errs := make(x.GqlErrorList, 0, len(err))
		for _, e := range err {
			errs = append(errs, GQLWrapf(e, "%s", prefix).(*x.GqlError))
		}
		return errs
	default:
		return x.GqlErrorf("%s because %s", prefix, err.Error())
	}
}
