package tk102

// Package tk102 decodes the positional report sentence sent by TK102-class GPS
// trackers.
//
// A device connects, writes one comma-separated sentence and closes:
//
//	1203292316,0031698765432,GPRMC,211657.000,A,5213.0247,N,00516.7757,E,0.00,273.30,290312,,,A*62,F,imei:123456789012345,123
//
// Parsing is a list of recognizers tried in order; the first match wins.
// Nothing here touches the clock or the network.
