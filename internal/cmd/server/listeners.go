package serverrun

import (
	"net"
)

type listeners struct {
	grpc   net.Listener
	http   net.Listener
	socket net.Listener
}

// listen binds every configured address up front so a port conflict fails
// Run before any server starts.
func listen(opts Options) (*listeners, error) {
	var l listeners
	for _, b := range []struct {
		addr string
		dst  *net.Listener
	}{
		{opts.GRPCAddr, &l.grpc},
		{opts.HTTPAddr, &l.http},
		{opts.SocketAddr, &l.socket},
	} {
		if b.addr == "" {
			continue
		}
		lis, err := net.Listen("tcp", b.addr)
		if err != nil {
			l.close()
			return nil, err
		}
		*b.dst = lis
	}
	return &l, nil
}

func (l *listeners) addrs() Addrs {
	var a Addrs
	if l.grpc != nil {
		a.GRPC = l.grpc.Addr().String()
	}
	if l.http != nil {
		a.HTTP = l.http.Addr().String()
	}
	if l.socket != nil {
		a.Socket = l.socket.Addr().String()
	}
	return a
}

func (l *listeners) close() {
	for _, lis := range []net.Listener{l.grpc, l.http, l.socket} {
		if lis != nil {
			_ = lis.Close()
		}
	}
}
