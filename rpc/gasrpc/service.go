// Mgmt
// Copyright (C) 2013-2018+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package gasrpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "gasengine.exchange.Exchange"
	deliverName = "Deliver"
)

// deliverer is implemented by *server; it is the hand-written equivalent of
// a protoc-generated "...Server" interface.
type deliverer interface {
	Deliver(ctx context.Context, req *rawBatch) (*rawAck, error)
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(rawBatch)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(deliverer).Deliver(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + deliverName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(deliverer).Deliver(ctx, req.(*rawBatch))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// "_Exchange_serviceDesc": one unary method, no streams.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*deliverer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: deliverName, Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gasrpc/service.go",
}
